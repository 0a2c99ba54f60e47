package version

// Version is stamped at release time.
var Version = "0.3.0"
