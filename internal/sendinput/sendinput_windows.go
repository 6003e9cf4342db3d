//go:build windows

package sendinput

import (
	"fmt"
	"syscall"
	"time"
	"unicode/utf16"
	"unsafe"
)

var (
	user32        = syscall.NewLazyDLL("user32.dll")
	procSendInput = user32.NewProc("SendInput")
)

const (
	inputKeyboard    = 1
	keyEventFUnicode = 0x0004
	keyEventFKeyUp   = 0x0002
	vkReturn         = 0x0D
)

// keybdInput mirrors Win32's KEYBDINPUT.
type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uint64
}

// input mirrors Win32's INPUT struct specialized to the keyboard union
// member, padded to the size of the largest union member (MOUSEINPUT) so
// SendInput reads a correctly-sized array regardless of which variant is
// populated.
type input struct {
	inputType uint32
	ki        keybdInput
	padding   uint64
}

// SendText types text into the currently focused window via SendInput,
// then presses Enter. Long text is chunked to avoid overflowing the input
// buffer, and code points outside the BMP are sent as UTF-16 surrogate
// pairs, one SendInput key event per code unit.
func SendText(text string) error {
	clean := cleanText(text)
	if clean == "" {
		return errEmptyMessage
	}

	chunks := chunkRunes(clean, chunkSize)
	multi := len(chunks) > 1

	for i, chunk := range chunks {
		inputs := buildUnicodeInputs(chunk)
		if err := sendInputs(inputs); err != nil {
			return err
		}
		if multi && i < len(chunks)-1 {
			time.Sleep(interChunkDelayMillis * time.Millisecond)
		}
	}

	time.Sleep(preEnterDelayMillis * time.Millisecond)
	return sendEnterKey()
}

func buildUnicodeInputs(chars []rune) []input {
	inputs := make([]input, 0, len(chars)*4)
	for _, ch := range chars {
		for _, unit := range utf16.Encode([]rune{ch}) {
			inputs = append(inputs,
				input{inputType: inputKeyboard, ki: keybdInput{wScan: unit, dwFlags: keyEventFUnicode}},
				input{inputType: inputKeyboard, ki: keybdInput{wScan: unit, dwFlags: keyEventFUnicode | keyEventFKeyUp}},
			)
		}
	}
	return inputs
}

func sendEnterKey() error {
	inputs := []input{
		{inputType: inputKeyboard, ki: keybdInput{wVk: vkReturn}},
		{inputType: inputKeyboard, ki: keybdInput{wVk: vkReturn, dwFlags: keyEventFKeyUp}},
	}
	return sendInputs(inputs)
}

func sendInputs(inputs []input) error {
	if len(inputs) == 0 {
		return nil
	}
	sent, _, callErr := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if sent == 0 {
		return fmt.Errorf("sendinput: SendInput failed: %w", callErr)
	}
	return nil
}
