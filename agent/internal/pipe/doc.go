// Package pipe forwards standard input as a single message.
//
// Run reads its input to end-of-stream line by line, rejoins the lines with
// "\n" (CRLF endings become LF and an unterminated last line gains a
// newline), and sends the result once. Nothing is streamed incrementally and
// a failed send is returned, not retried.
package pipe
