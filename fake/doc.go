// Package fake
// Author: momentics <momentics@gmail.com>
//
// Test doubles for socket handlers and name resolution.
package fake
