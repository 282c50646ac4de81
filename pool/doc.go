// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer recycling for socket read loops. Buffers are grouped by size, one
// sync.Pool per size class, shared process-wide through DefaultManager.
package pool
