// Package workspace lays out the directories owned by the build service below a
// single root: one persistent working copy per project, the build log tree and
// the database files.
//
// Working copies are persistent so repeated builds only fetch new objects. The
// directory of a project is derived from its id, which keeps working copies
// unique per project without any bookkeeping.
package workspace
