package rome

import (
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/nanoncore/nano-rome/types"
)

// Matrix letters accepted in an address
const (
	MatrixA  = "A"
	MatrixB  = "B"
	MatrixQ  = "Q"
	MatrixXY = "XY"
)

var matrixLetters = []string{MatrixA, MatrixB, MatrixQ, MatrixXY}

// Address is a parsed "<host>[:<second host>]:<matrix letter>" resource
// address. Only matrix Q may span a second controller (Q128).
type Address struct {
	Raw          string
	Host         string
	SecondHost   string
	MatrixLetter string
}

// ParseAddress parses the caller-facing address grammar
func ParseAddress(s string) (Address, error) {
	fail := func() (Address, error) {
		return Address{}, &types.AddressingError{Address: s, Reason: types.AddressFormatMessage}
	}

	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return fail()
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return fail()
		}
	}

	letter := strings.ToUpper(parts[len(parts)-1])
	if !lo.Contains(matrixLetters, letter) {
		return fail()
	}

	addr := Address{Raw: s, Host: parts[0], MatrixLetter: letter}
	if len(parts) == 3 {
		if letter != MatrixQ {
			return fail()
		}
		addr.SecondHost = parts[1]
	}
	return addr, nil
}

// Hosts returns the controller addresses, first host first
func (a Address) Hosts() []string {
	if a.SecondHost == "" {
		return []string{a.Host}
	}
	return []string{a.Host, a.SecondHost}
}

// Matches reports whether a port of the given blade letter belongs to the
// addressed matrix. An empty matrix letter matches everything.
func (a Address) Matches(bladeLetter string) bool {
	switch a.MatrixLetter {
	case "":
		return true
	case MatrixXY:
		return bladeLetter == "X" || bladeLetter == "Y"
	default:
		return bladeLetter == a.MatrixLetter
	}
}

// ResolvePort turns a caller-supplied port reference into a logical port
// name. "A5", "a05" and, for single-letter matrices, "5" are accepted. A
// name from another matrix is an addressing error.
func (a Address) ResolvePort(name string) (string, error) {
	name = strings.TrimSpace(name)
	if id, err := strconv.Atoi(name); err == nil {
		if a.MatrixLetter == MatrixXY || a.MatrixLetter == "" {
			return "", &types.AddressingError{Address: a.Raw, Reason: "port " + name + " needs a blade letter"}
		}
		return a.MatrixLetter + strconv.Itoa(id), nil
	}
	norm, ok := NormalizePortName(name)
	if !ok {
		return "", &types.PortLookupError{Name: name}
	}
	if !a.Matches(norm[:1]) {
		return "", &types.AddressingError{
			Address: a.Raw,
			Reason:  "port " + norm + " is not part of matrix " + a.MatrixLetter,
		}
	}
	return norm, nil
}

// String renders the address back in its canonical form
func (a Address) String() string {
	return strings.Join(append(a.Hosts(), a.MatrixLetter), ":")
}
