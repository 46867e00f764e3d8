package scanner

import "os/exec"

// FindBinary locates a tool on PATH, falling back to common install
// locations. If nothing matches, the bare name is returned and the OS
// rejects it at exec time.
func FindBinary(name string) string {
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	for _, p := range []string{"/usr/bin/" + name, "/usr/local/bin/" + name, "/snap/bin/" + name} {
		if path, err := exec.LookPath(p); err == nil {
			return path
		}
	}
	return name
}
