package util

// Version is the GMBridge release version.
const Version = "1.0.0"
