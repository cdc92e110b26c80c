package secret

import (
	"fmt"
	"strings"

	"github.com/sethvargo/go-diceware/diceware"
)

// PassphraseWords is the number of words in a generated passphrase
const PassphraseWords = 10

// GeneratePassphrase returns ten lowercase diceware words joined by dashes
func GeneratePassphrase() (string, error) {
	words := make([]string, 0, PassphraseWords)
	for len(words) < PassphraseWords {
		batch, err := diceware.Generate(PassphraseWords - len(words))
		if err != nil {
			return "", fmt.Errorf("failed to generate passphrase: %w", err)
		}
		for _, w := range batch {
			// the word list has a few hyphenated words
			if strings.Contains(w, "-") {
				continue
			}
			words = append(words, strings.ToLower(w))
		}
	}
	return strings.Join(words, "-"), nil
}
