package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// promptConfirm asks a yes/no question and defaults to no.
func promptConfirm(in io.Reader, out io.Writer, question string) (bool, error) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s [y/N]: ", question)
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}

		switch strings.ToLower(strings.TrimSpace(input)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		default:
			fmt.Fprintln(out, "Please answer y or n.")
			if err != nil {
				return false, nil
			}
		}
	}
}

// promptString reads one line, returning def for an empty answer.
func promptString(reader *bufio.Reader, out io.Writer, label, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}

// promptInt reads a positive integer, returning def for an empty or
// invalid answer.
func promptInt(reader *bufio.Reader, out io.Writer, label string, def int) int {
	input := promptString(reader, out, label, strconv.Itoa(def))
	if v, err := strconv.Atoi(input); err == nil && v > 0 {
		return v
	}
	return def
}
