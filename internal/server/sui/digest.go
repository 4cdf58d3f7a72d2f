package sui

import (
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const transactionDataTag = "TransactionData::"

// TransactionDigest computes the digest a fullnode assigns to the
// transaction, so it can be recorded before the transaction is executed.
func TransactionDigest(txBytes []byte) string {
	buf := make([]byte, 0, len(transactionDataTag)+len(txBytes))
	buf = append(buf, transactionDataTag...)
	buf = append(buf, txBytes...)
	sum := blake2b.Sum256(buf)
	return base58.Encode(sum[:])
}
