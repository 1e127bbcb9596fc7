package rest

import (
	"net/http"
	"path"
)

// Static serves the UI bundle from dir. Paths without an extension that do
// not exist fall back to index.html. Files are served in place, without
// the index.html redirect http.FileServer applies, so the offline cache
// can request /index.html directly.
func Static(dir string) http.Handler {
	root := http.Dir(dir)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		if name == "/" {
			name = "/index.html"
		}

		f, err := root.Open(name)
		if err == nil {
			if info, statErr := f.Stat(); statErr == nil && !info.IsDir() {
				defer f.Close()
				http.ServeContent(w, r, info.Name(), info.ModTime(), f)
				return
			}
			f.Close()
		}

		if path.Ext(name) != "" {
			http.NotFound(w, r)
			return
		}

		index, err := root.Open("/index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer index.Close()
		info, err := index.Stat()
		if err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), index)
	})
}
