package loader

import (
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"github.com/poltergeist/polterpack/pkg/env"
)

const (
	// PathModule is a subset of node's path module
	PathModule = "path"

	// ConfigModule exposes the build environment and the conventional
	// per-target input and output options to config modules
	ConfigModule = "polterpack/config"
)

func pathModule(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)

	_ = exports.Set("sep", string(filepath.Separator))
	_ = exports.Set("join", func(parts ...string) string {
		if len(parts) == 0 {
			return "."
		}
		return filepath.Join(parts...)
	})
	_ = exports.Set("resolve", func(parts ...string) string {
		return resolvePath(parts...)
	})
	_ = exports.Set("dirname", filepath.Dir)
	_ = exports.Set("extname", filepath.Ext)
	_ = exports.Set("isAbsolute", filepath.IsAbs)
	_ = exports.Set("basename", func(p string, ext ...string) string {
		base := filepath.Base(p)
		if len(ext) > 0 && ext[0] != "" && base != ext[0] {
			base = strings.TrimSuffix(base, ext[0])
		}
		return base
	})
	_ = exports.Set("relative", func(from, to string) string {
		rel, err := filepath.Rel(resolvePath(from), resolvePath(to))
		if err != nil {
			panic(vm.NewGoError(err))
		}
		if rel == "." {
			return ""
		}
		return rel
	})
}

// resolvePath works right to left until an absolute path is formed, then
// falls back to the working directory
func resolvePath(parts ...string) string {
	var segs []string
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "" {
			continue
		}
		segs = append([]string{parts[i]}, segs...)
		if filepath.IsAbs(parts[i]) {
			return filepath.Join(segs...)
		}
	}
	abs, err := filepath.Abs(filepath.Join(segs...))
	if err != nil {
		return filepath.Join(segs...)
	}
	return abs
}

func configModule(vm *goja.Runtime, module *goja.Object) {
	e := env.Get()
	exports := module.Get("exports").(*goja.Object)

	_ = exports.Set("dev", e.Dev)
	_ = exports.Set("src", e.Src)
	_ = exports.Set("dest", e.Dest)

	client := vm.NewObject()
	_ = client.Set("input", func() string {
		return filepath.Join(e.Src, "client.js")
	})
	_ = client.Set("output", func() map[string]interface{} {
		return map[string]interface{}{
			"dir":            filepath.Join(e.Dest, "client"),
			"entryFileNames": "[name].[hash].js",
			"chunkFileNames": "[name].[hash].js",
			"format":         "esm",
			"sourcemap":      e.Dev,
		}
	})

	server := vm.NewObject()
	_ = server.Set("input", func() map[string]interface{} {
		return map[string]interface{}{
			"server": filepath.Join(e.Src, "server.js"),
		}
	})
	_ = server.Set("output", func() map[string]interface{} {
		return map[string]interface{}{
			"dir":       filepath.Join(e.Dest, "server"),
			"format":    "cjs",
			"sourcemap": e.Dev,
		}
	})

	serviceworker := vm.NewObject()
	_ = serviceworker.Set("input", func() string {
		return filepath.Join(e.Src, "service-worker.js")
	})
	_ = serviceworker.Set("output", func() map[string]interface{} {
		return map[string]interface{}{
			"file":      filepath.Join(e.Dest, "service-worker.js"),
			"format":    "iife",
			"sourcemap": e.Dev,
		}
	})

	_ = exports.Set("client", client)
	_ = exports.Set("server", server)
	_ = exports.Set("serviceworker", serviceworker)
}
