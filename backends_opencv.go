//go:build opencv

package main

import _ "github.com/smazurov/qrgrabber/internal/platform/opencv"
