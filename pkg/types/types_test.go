package types

import "testing"

func TestMessagePrivileges(t *testing.T) {
	msg := Message{
		Header: MessageHeader{
			NumRequiredSignatures:       3,
			NumReadonlySignedAccounts:   1,
			NumReadonlyUnsignedAccounts: 2,
		},
		AccountKeys: make([]Pubkey, 6),
	}

	wantSigner := []bool{true, true, true, false, false, false}
	wantWritable := []bool{true, true, false, true, false, false}
	for i := range msg.AccountKeys {
		if got := msg.IsSigner(i); got != wantSigner[i] {
			t.Errorf("IsSigner(%d) = %v, want %v", i, got, wantSigner[i])
		}
		if got := msg.IsWritable(i); got != wantWritable[i] {
			t.Errorf("IsWritable(%d) = %v, want %v", i, got, wantWritable[i])
		}
	}
}

func TestTransactionWireFormat(t *testing.T) {
	tx := &Transaction{
		Signatures: []Signature{{1, 2, 3}},
		Message: Message{
			Header:          MessageHeader{NumRequiredSignatures: 1, NumReadonlyUnsignedAccounts: 1},
			AccountKeys:     []Pubkey{{9}, SystemProgramID},
			RecentBlockhash: Hash{7},
			Instructions: []CompiledInstruction{
				{ProgramIDIndex: 1, AccountIndices: []uint8{0}, Data: make([]byte, 200)},
			},
		},
	}

	raw, err := tx.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	decoded, err := DeserializeTransaction(raw)
	if err != nil {
		t.Fatalf("DeserializeTransaction failed: %v", err)
	}
	if decoded.ID() != tx.ID() {
		t.Errorf("signature mismatch")
	}
	if decoded.FeePayer() != (Pubkey{9}) {
		t.Errorf("expected fee payer %s, got %s", Pubkey{9}, decoded.FeePayer())
	}
	if len(decoded.Message.Instructions) != 1 || len(decoded.Message.Instructions[0].Data) != 200 {
		t.Fatalf("instruction not preserved: %+v", decoded.Message.Instructions)
	}
}

func TestCompactU16(t *testing.T) {
	for _, v := range []int{0, 0x7f, 0x80, 0x3fff, 0x4000, 0xffff} {
		buf := appendCompactU16(nil, v)
		got, n, err := ParseCompactU16(buf)
		if err != nil {
			t.Fatalf("ParseCompactU16(%d) failed: %v", v, err)
		}
		if int(got) != v || n != len(buf) {
			t.Errorf("value %d: got %d (%d bytes of %d)", v, got, n, len(buf))
		}
	}
}

func TestPersonTokenProgramID(t *testing.T) {
	if PersonTokenProgramID.String() != "MetfPersonToken1111111111111111111111111111" {
		t.Errorf("unexpected program id %s", PersonTokenProgramID)
	}
	if !PersonTokenProgramID.IsNativeProgram() {
		t.Errorf("person token program should be native")
	}
}

func TestNewMessageOrdering(t *testing.T) {
	payer, mint, vault, readonly := Pubkey{1}, Pubkey{2}, Pubkey{3}, Pubkey{4}
	ix := &Instruction{
		ProgramID: PersonTokenProgramID,
		Accounts: []AccountMeta{
			NewAccountMeta(readonly, false, false),
			NewAccountMeta(vault, true, false),
			NewAccountMeta(mint, true, true),
			NewAccountMeta(payer, true, true),
		},
		Data: []byte{1},
	}

	msg, err := NewMessage(payer, Hash{5}, ix)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	want := []Pubkey{payer, mint, vault, readonly, PersonTokenProgramID}
	if len(msg.AccountKeys) != len(want) {
		t.Fatalf("got %d keys, want %d", len(msg.AccountKeys), len(want))
	}
	for i, pk := range want {
		if msg.AccountKeys[i] != pk {
			t.Errorf("key %d = %s, want %s", i, msg.AccountKeys[i], pk)
		}
	}
	if msg.Header.NumRequiredSignatures != 2 || msg.Header.NumReadonlySignedAccounts != 0 || msg.Header.NumReadonlyUnsignedAccounts != 2 {
		t.Errorf("unexpected header %+v", msg.Header)
	}

	compiled := msg.Instructions[0]
	if compiled.ProgramIDIndex != 4 {
		t.Errorf("program index = %d, want 4", compiled.ProgramIDIndex)
	}
	wantIdx := []uint8{3, 2, 1, 0}
	for i, idx := range wantIdx {
		if compiled.AccountIndices[i] != idx {
			t.Errorf("account index %d = %d, want %d", i, compiled.AccountIndices[i], idx)
		}
	}
}
