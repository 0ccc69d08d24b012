package version

// EmptyValue is what Version holds when the binary wasn't built through
// `make`, such as during unit tests.
const EmptyValue = "set-by-make"

// Version is stamped by the build with the release tag, plus the commit hash
// on non-release builds.
var Version = EmptyValue
