package main

import (
	"fmt"
	"time"

	"github.com/e7canasta/senyas-gesture/framesource"
)

func printBanner(device string, synthetic bool, width, height int, fps float64, outputDir string, maxFrames int) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║              Senyas Capture Check %-24s║\n", version)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Configuration:\n")
	if synthetic {
		fmt.Printf("  Source:        synthetic pattern\n")
	} else {
		fmt.Printf("  Device:        %s\n", device)
	}
	fmt.Printf("  Resolution:    %dx%d\n", width, height)
	fmt.Printf("  Target FPS:    %.2f\n", fps)
	if outputDir != "" {
		fmt.Printf("  Output Dir:    %s\n", outputDir)
	} else {
		fmt.Printf("  Output Dir:    (none - frames not saved)\n")
	}
	if maxFrames > 0 {
		fmt.Printf("  Max Frames:    %d\n", maxFrames)
	} else {
		fmt.Printf("  Max Frames:    unlimited\n")
	}
	fmt.Printf("\n")
}

func printWarmup(stats *framesource.WarmupStats) {
	fmt.Printf("Warm-up:\n")
	fmt.Printf("  Frames:        %d in %s\n", stats.FramesReceived, stats.Duration.Round(time.Millisecond))
	fmt.Printf("  FPS:           mean %.2f, stddev %.2f, range %.2f-%.2f\n",
		stats.FPSMean, stats.FPSStdDev, stats.FPSMin, stats.FPSMax)
	fmt.Printf("  Jitter:        mean %.3fs, max %.3fs\n", stats.JitterMean, stats.JitterMax)
	fmt.Printf("  Stable:        %v\n", stats.IsStable)
	fmt.Printf("\n")
}

func printStats(stats framesource.Stats, uptime time.Duration, saver *frameSaver, dropped uint64) {
	fmt.Printf("\n")
	fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
	fmt.Printf("│ Capture Statistics (Uptime: %s)\n", uptime.Round(time.Second))
	fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
	fmt.Printf("│ Frames Captured:    %6d frames\n", stats.FrameCount)
	if saver != nil {
		fmt.Printf("│ Frames Saved:       %6d frames\n", saver.saved)
	}
	if dropped > 0 {
		fmt.Printf("│ Display Drops:      %6d frames\n", dropped)
	}
	fmt.Printf("│ Target FPS:         %6.2f fps\n", stats.FPSTarget)
	fmt.Printf("│ Real FPS:           %6.2f fps\n", stats.FPSReal)
	fmt.Printf("│ Latency:            %6d ms\n", stats.LatencyMS)
	fmt.Printf("│ Bytes Read:         %6.2f MB\n", float64(stats.BytesRead)/1024/1024)
	fmt.Printf("│ Reconnects:         %6d\n", stats.Reconnects)
	fmt.Printf("│ Running:            %6v\n", stats.IsRunning)
	totalErrors := stats.ErrorsDevice + stats.ErrorsFormat + stats.ErrorsPermission + stats.ErrorsUnknown
	if totalErrors > 0 {
		fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
		fmt.Printf("│ Device Errors:      %6d\n", stats.ErrorsDevice)
		fmt.Printf("│ Format Errors:      %6d\n", stats.ErrorsFormat)
		fmt.Printf("│ Permission Errors:  %6d\n", stats.ErrorsPermission)
		fmt.Printf("│ Unknown Errors:     %6d\n", stats.ErrorsUnknown)
	}
	fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
	fmt.Printf("\n")
}

func printFinal(stats framesource.Stats, uptime time.Duration, saver *frameSaver, dropped, faults uint64) {
	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("                     Final Statistics                      \n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Total Uptime:       %s\n", uptime.Round(time.Second))
	fmt.Printf("  Frames Captured:    %d frames\n", stats.FrameCount)
	fmt.Printf("  Display Drops:      %d frames\n", dropped)
	fmt.Printf("  Capture Faults:     %d\n", faults)
	if saver != nil {
		fmt.Printf("  Frames Saved:       %d frames\n", saver.saved)
		fmt.Printf("  Save Failures:      %d frames\n", saver.failed)
	}
	fmt.Printf("  Average FPS:        %.2f fps\n", stats.FPSReal)
	fmt.Printf("  Bytes Read:         %.2f MB\n", float64(stats.BytesRead)/1024/1024)
	fmt.Printf("  Reconnection Count: %d\n", stats.Reconnects)
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")
}
