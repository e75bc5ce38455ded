// Package v4l2 is the Linux capture backend. Devices are enumerated from
// sysfs, frames are streamed with blackjack/webcam and decoded in software
// by a decode.Scanner bound to the device.
//
// Importing the package registers the "v4l2" backend on Linux.
package v4l2
