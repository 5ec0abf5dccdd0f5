package jvm

// Aikar's garbage collection tuning for game servers:
// https://aikar.co/2018/07/02/tuning-the-jvm-g1gc-garbage-collector-flags-for-minecraft/
//
//nolint:gochecknoglobals // The flag set is a fixed table shared by every launch.
var tuningFlags = []string{
	"-XX:+UseG1GC",
	"-XX:+ParallelRefProcEnabled",
	"-XX:MaxGCPauseMillis=200",
	"-XX:+UnlockExperimentalVMOptions",
	"-XX:+DisableExplicitGC",
	"-XX:+AlwaysPreTouch",
	"-XX:G1NewSizePercent=30",
	"-XX:G1MaxNewSizePercent=40",
	"-XX:G1HeapRegionSize=8M",
	"-XX:G1ReservePercent=20",
	"-XX:G1HeapWastePercent=5",
	"-XX:G1MixedGCCountTarget=4",
	"-XX:InitiatingHeapOccupancyPercent=15",
	"-XX:G1MixedGCLiveThresholdPercent=90",
	"-XX:G1RSetUpdatingPauseTimePercent=5",
	"-XX:SurvivorRatio=32",
	"-XX:+PerfDisableSharedMem",
	"-XX:MaxTenuringThreshold=1",
	"-Dusing.aikars.flags=https://mcflags.emc.gs",
	"-Daikars.new.flags=true",
}

// Flags returns the JVM arguments for launching the server with the given
// heap size. The initial and maximum heap are pinned to the same value so
// the JVM never resizes mid-game.
func Flags(memory string) []string {
	flags := make([]string, 0, len(tuningFlags)+2)
	flags = append(flags, "-Xms"+memory, "-Xmx"+memory)
	flags = append(flags, tuningFlags...)

	return flags
}
