// example/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/user0608/eyetrack"
)

func main() {
	input := "input.jpg"
	if len(os.Args) > 1 {
		input = os.Args[1]
	}

	opts := eyetrack.DefaultMeshOptions()
	det, err := eyetrack.NewMeshDetector(&opts)
	if err != nil {
		slog.Error("init", "err", err)
		return
	}
	a, err := eyetrack.New(det, nil)
	if err != nil {
		slog.Error("init", "err", err)
		det.Close()
		return
	}
	defer a.Close()

	in, err := os.ReadFile(input)
	if err != nil {
		slog.Error("read input", "err", err)
		return
	}
	start := time.Now()
	res, err := a.AnalyzeBytes(context.Background(), in)
	if err != nil {
		slog.Error("analyze", "err", err)
		return
	}
	fmt.Println("duration (s):", time.Since(start).Seconds())
	if !res.FaceDetected {
		fmt.Println(res.Message)
		return
	}
	out, err := json.MarshalIndent(res.Analysis, "", "  ")
	if err != nil {
		slog.Error("encode", "err", err)
		return
	}
	fmt.Println(string(out))
}
