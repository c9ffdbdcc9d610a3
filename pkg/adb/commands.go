/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: commands.go
Description: Argument builders for the adb invocations the pipeline depends on:
device listing, property queries, process snapshots and the threadtime log stream.
*/

package adb

// Property keys queried for every attached device
const (
	PropModel     = "ro.product.model"
	PropOSVersion = "ro.build.version.release"
	PropSDK       = "ro.build.version.sdk"
)

// DevicesArgs lists attached devices
func DevicesArgs() []string {
	return []string{"devices"}
}

// GetpropArgs queries a single system property on serial
func GetpropArgs(serial, key string) []string {
	return []string{"-s", serial, "shell", "getprop", key}
}

// PSArgs snapshots the process list on serial. extra is appended to ps
// (e.g. "-A" on devices whose ps only shows the shell's own processes).
func PSArgs(serial string, extra ...string) []string {
	args := []string{"-s", serial, "shell", "ps"}
	return append(args, extra...)
}

// LogcatArgs streams the device log in threadtime format
func LogcatArgs(serial string) []string {
	return []string{"-s", serial, "logcat", "-v", "threadtime"}
}

// VersionArgs asks the tool for its version, used by self-checks
func VersionArgs() []string {
	return []string{"version"}
}
