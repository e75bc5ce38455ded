package main

// Capture backends register themselves with the platform registry.
import (
	_ "github.com/smazurov/qrgrabber/internal/platform/fake"
	_ "github.com/smazurov/qrgrabber/internal/platform/v4l2"
)
