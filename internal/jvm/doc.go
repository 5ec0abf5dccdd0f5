// Package jvm assembles the Java command line arguments used to launch
// the game server, based on Aikar's G1GC tuning.
package jvm
