package main

import (
	"flag"
	"log"
	"os"

	"github.com/pkg/profile"

	"github.com/breadbin64/breadbin/internal/c64"
	"github.com/breadbin64/breadbin/internal/ui"
)

func main() {
	basicPath := flag.String("basic", "roms/basic.901226-01.bin", "path to the BASIC ROM image (8 KB)")
	kernalPath := flag.String("kernal", "roms/kernal.901227-03.bin", "path to the KERNAL ROM image (8 KB)")
	chargenPath := flag.String("chargen", "roms/characters.901225-01.bin", "path to the character ROM image (4 KB)")
	ntsc := flag.Bool("ntsc", false, "emulate an NTSC machine instead of PAL")
	prof := flag.Bool("profile", false, "write a cpu profile to the working directory")
	flag.Parse()

	if *prof {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	basic, err := os.ReadFile(*basicPath)
	if err != nil {
		log.Fatalf("couldn't read basic rom: %s", err)
	}
	kernal, err := os.ReadFile(*kernalPath)
	if err != nil {
		log.Fatalf("couldn't read kernal rom: %s", err)
	}
	chargen, err := os.ReadFile(*chargenPath)
	if err != nil {
		log.Fatalf("couldn't read character rom: %s", err)
	}

	standard := c64.StandardPAL
	if *ntsc {
		standard = c64.StandardNTSC
	}

	machine, err := c64.New(c64.Config{
		Standard:  standard,
		BasicROM:  basic,
		KernalROM: kernal,
		CharROM:   chargen,
	})
	if err != nil {
		log.Fatalf("couldn't build the machine: %s", err)
	}

	log.Printf("starting %s machine at %d Hz", standard, standard.ClockHz())
	if err := ui.RunUI(ui.New(machine)); err != nil {
		log.Fatalf("ui stopped: %s", err)
	}
}
