// Package resolve joins library files to catalog metadata.
//
// A package file carries a title ID derived from its container or name;
// the catalog holds titledb metadata per locale. The Resolver walks the
// configured locales in order and tries an exact ID match, then the
// alternate ID lists, then the base title for update IDs (XXX...800 ->
// XXX...000, with " (Update)" appended to the name). Every resolution
// records which locale and rule produced it so callers can explain the
// match.
package resolve
