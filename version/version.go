package version

// Version is the Major.Minor.Patch tag from GIT, supplied
// at build time via -ldflags - else 'dev' as a default
var Version string = "dev"
