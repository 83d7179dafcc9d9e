// Package preflight provides readiness checks for the directories, key
// material, and catalog data depot depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup. Fatal failures abort the start;
//     the rest are logged and surfaced through the status API.
//   - The status endpoint reports the results so "depot status" can
//     display them.
//
// Only the directory checks are fatal: a server without its rom or
// staging directory cannot do anything useful, while missing keys or an
// empty catalog just degrade identification.
package preflight
