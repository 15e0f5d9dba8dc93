package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseContract validates a contract address felt and returns it as a
// 0x-prefixed, zero-padded 64-digit lower-case hex string.
func ParseContract(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("contract address is required")
	}
	if !strings.HasPrefix(input, "0x") && !strings.HasPrefix(input, "0X") {
		return "", fmt.Errorf("invalid contract address: %s", input)
	}

	digits := input[2:]
	if digits == "" || len(digits) > 2*common.HashLength {
		return "", fmt.Errorf("invalid contract address length: %s", input)
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}

	data, err := hexutil.Decode("0x" + digits)
	if err != nil {
		return "", fmt.Errorf("invalid contract address: %s", input)
	}
	return common.BytesToHash(data).Hex(), nil
}

// ContractQuery validates input and returns it trimmed but otherwise as
// configured, for use as the feed's contract filter.
func ContractQuery(input string) (string, error) {
	if _, err := ParseContract(input); err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
