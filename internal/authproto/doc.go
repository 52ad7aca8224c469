// Package authproto implements the framed message protocol spoken between
// the prompt-side frontend and the credential verifier backend over a pair
// of pipes.
//
// Each frame is one ASCII type character, a single space, the payload length
// in decimal ASCII, a newline, the raw payload bytes and a trailing newline:
//
//	<type> <length>\n<payload>\n
//
// The declared length is authoritative; payloads are never scanned for
// embedded newlines and are bounded at 65534 bytes. There is deliberately no
// success frame: the verifier reports the authentication outcome only through
// its process exit status, so a compromised conversation cannot forge an
// unlock.
package authproto
