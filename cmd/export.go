package cmd

import (
	"fmt"
	"os"

	"github.com/mdp/qrterminal/v3"

	"github.com/petalvault/petalvault/internal/frame"
	syncpkg "github.com/petalvault/petalvault/internal/sync"
)

// Export builds a changeset for a device and renders it as a sequence
// of QR codes in the terminal. The device cursor only advances after
// the operator confirms the far side scanned everything.
func Export(flagPath, deviceIDOrName string, asText bool) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	engine := syncpkg.New(v)
	blob, count, err := engine.BuildChangeset(deviceIDOrName)
	if err != nil {
		HandleError(err)
	}
	if count == 0 {
		fmt.Println("Nothing to sync: the device is up to date")
		return
	}

	frames, err := frame.Split(blob, "")
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("%d record(s), %d frame(s)\n", count, len(frames))

	for {
		for i := range frames {
			text, err := frames[i].Encode()
			if err != nil {
				HandleError(err)
			}

			fmt.Printf("\nFrame %d/%d\n", i+1, len(frames))
			if asText {
				fmt.Println(text)
			} else {
				renderQR(text)
			}

			if i < len(frames)-1 {
				if _, err := ReadLine("Enter for next frame... "); err != nil {
					return
				}
			}
		}

		if !Confirm("\nShow the sequence again?") {
			break
		}
	}

	if Confirm("Did the other device report a successful merge?") {
		if err := engine.AckDevice(deviceIDOrName); err != nil {
			HandleError(err)
		}
		fmt.Println("✓ Device cursor advanced")
	} else {
		fmt.Println("Cursor unchanged; the same records will export again next time")
	}
}

// renderQR draws one frame as a terminal QR code. Error correction
// stays at the lowest level to keep codes scannable at this payload
// size.
func renderQR(text string) {
	cfg := qrterminal.Config{
		Level:     qrterminal.L,
		Writer:    os.Stdout,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	}
	qrterminal.GenerateWithConfig(text, cfg)
}
