//go:build !(darwin || linux)

package opencl

func loadLibrary() (uintptr, error) {
	return 0, ErrLibraryNotFound
}

func registerFunctions(lib uintptr) error {
	return ErrLibraryNotFound
}
