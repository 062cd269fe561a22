//go:build !unix

// On platforms without process groups the sandbox backend is absent;
// environment.New("sandbox") fails there, and
// service.defaultEnvironmentBackend selects "mock" on such platforms.
package sandbox
