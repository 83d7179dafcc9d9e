// Package archive inspects console game packages on disk.
//
// NSP and NSZ packages use the PFS0 container format, whose named entries
// include rights tickets that encode the title ID. Formats without a
// readable container (XCI, XCZ, NCZ) fall back to bracketed filename
// tokens. Malformed containers surface as errs.DecodeError so scanners
// can count the failure and keep walking.
package archive
