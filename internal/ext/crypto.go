package ext

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

var hashers = map[string]func([]byte) []byte{
	"sha256":      func(b []byte) []byte { s := sha256.Sum256(b); return s[:] },
	"sha512":      func(b []byte) []byte { s := sha512.Sum512(b); return s[:] },
	"sha3-256":    func(b []byte) []byte { s := sha3.Sum256(b); return s[:] },
	"sha3-512":    func(b []byte) []byte { s := sha3.Sum512(b); return s[:] },
	"blake2b-256": func(b []byte) []byte { s := blake2b.Sum256(b); return s[:] },
	"blake2b-512": func(b []byte) []byte { s := blake2b.Sum512(b); return s[:] },
}

// Hash returns the hex digest of data under algorithm
func Hash(algorithm string, data []byte) (string, error) {
	h, ok := hashers[strings.ToLower(algorithm)]
	if !ok {
		return "", fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
	return hex.EncodeToString(h(data)), nil
}

// Crypto installs a global crypto object. It needs no permissions.
type Crypto struct{}

func NewCrypto() *Crypto { return &Crypto{} }

func (c *Crypto) Name() string { return "crypto" }

func (c *Crypto) Register(rt *sandbox.Runtime, vm *goja.Runtime) error {
	obj := vm.NewObject()
	if err := obj.Set("randomUUID", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(uuid.NewString())
	}); err != nil {
		return err
	}
	if err := obj.Set("hash", func(call goja.FunctionCall) goja.Value {
		algorithm := stringArg(vm, call, 0, "algorithm")
		data := stringArg(vm, call, 1, "data")
		digest, err := Hash(algorithm, []byte(data))
		if err != nil {
			panic(vm.NewTypeError("%v", err))
		}
		return vm.ToValue(digest)
	}); err != nil {
		return err
	}
	return vm.Set("crypto", obj)
}
