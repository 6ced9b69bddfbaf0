// gitfilter rewrites the history of a git repository.
// It drives git fast-export and git fast-import as subprocesses and rewrites
// the stream between them: paths can be selected, renamed or dropped, blob
// contents and commit/tag messages can be redacted, tags and branches can be
// renamed, and oversized or listed blobs can be stripped. Topology (parents
// and merges) is preserved, and the run leaves auditable old→new mappings
// under <git-dir>/filter-repo.
//
// See [Run] for the full pipeline and [Options] for everything that can be
// configured. The [analyze] subpackage provides a read-only metrics pass and
// the [sanity] subpackage the preflight checks.
package gitfilter
