package att

// Signature is the trailing authentication signature of a Signed Write
// Command: a 4-byte sign counter followed by an 8-byte MAC.
type Signature [SignatureLen]byte

// Signer produces the signature for a Signed Write Command. message is the
// opcode, handle and value. Key material (CSRK) is owned by the Signer.
type Signer interface {
	Sign(message []byte, signCounter uint32) (Signature, error)
}

// Verifier checks the signature of a received Signed Write Command.
type Verifier interface {
	Verify(message []byte, sig Signature) error
}

// VerifySignedWriteCommand checks pdu's signature with v. Without a Verifier
// the signature is reported as unverified via ErrNotImplemented; callers must
// not treat the write as authenticated in that case.
func VerifySignedWriteCommand(pdu []byte, v Verifier) error {
	_, n, sig, err := ParseSignedWriteCommand(pdu, nil)
	if err != nil {
		return err
	}
	if v == nil {
		return ErrNotImplemented
	}
	return v.Verify(pdu[:HandleValueHeaderSize+n], sig)
}
