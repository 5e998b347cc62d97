// Package artifacts reads the files instrumentation writes into a session's
// output folder: traces, screenshots, result plists and instruments.log.
//
// Listing walks the folder concurrently (fastwalk) and sniffs each file's
// type (mimetype). Text files are served as UTF-8 whatever their stored
// encoding. WriteArchive bundles the folder as tar.gz or tar.zst.
package artifacts
