package emb

import (
	"fmt"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// The ONNX runtime environment is process wide. Every Encoder holds one
// reference; the environment is torn down when the last one is released.
var (
	runtimeMu   sync.Mutex
	runtimeRefs int
	runtimeLib  string
)

func acquireRuntime(libPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	libPath = strings.TrimSpace(libPath)
	if runtimeRefs > 0 {
		if libPath != "" && runtimeLib != "" && libPath != runtimeLib {
			return fmt.Errorf("onnxruntime already initialized from %s", runtimeLib)
		}
		runtimeRefs++
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	runtimeLib = libPath
	runtimeRefs = 1
	return nil
}

func releaseRuntime() {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if runtimeRefs == 0 {
		return
	}
	runtimeRefs--
	if runtimeRefs > 0 {
		return
	}
	if ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
	runtimeLib = ""
}
