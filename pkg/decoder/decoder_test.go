package decoder

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tradeABI = `[{"anonymous":false,"inputs":[{"indexed":true,"name":"user","type":"address"},{"indexed":true,"name":"token","type":"address"},{"indexed":false,"name":"isBuy","type":"bool"},{"indexed":false,"name":"ethAmount","type":"uint256"}],"name":"Trade","type":"event"}]`

func TestDecode(t *testing.T) {
	d, err := NewFromJSON(tradeABI)
	require.NoError(t, err)

	sig := crypto.Keccak256Hash([]byte("Trade(address,address,bool,uint256)"))
	id, err := d.EventID("Trade")
	require.NoError(t, err)
	assert.Equal(t, sig, id)

	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token := common.HexToAddress("0x2222222222222222222222222222222222222222")
	amount := big.NewInt(1000000)

	parsedABI, _ := abi.JSON(strings.NewReader(tradeABI))
	packedData, err := parsedABI.Events["Trade"].Inputs.NonIndexed().Pack(true, amount)
	require.NoError(t, err)

	log := types.Log{
		Topics: []common.Hash{
			sig,
			common.BytesToHash(user.Bytes()),
			common.BytesToHash(token.Bytes()),
		},
		Data: packedData,
	}

	decoded, err := d.Decode(log)
	require.NoError(t, err)
	assert.Equal(t, "Trade", decoded.Name)
	assert.Equal(t, user, decoded.Inputs["user"])
	assert.Equal(t, token, decoded.Inputs["token"])
	assert.Equal(t, true, decoded.Inputs["isBuy"])
	assert.Equal(t, amount, decoded.Inputs["ethAmount"])
}

func TestNewFromJSON_Fail(t *testing.T) {
	_, err := NewFromJSON("invalid json")
	assert.Error(t, err)
}

func TestEventID_Unknown(t *testing.T) {
	d, _ := NewFromJSON(tradeABI)
	_, err := d.EventID("Missing")
	assert.Error(t, err)
}

func TestDecode_ErrorCases(t *testing.T) {
	const abiJSON = `[{"anonymous":false,"inputs":[],"name":"Empty","type":"event"}]`
	d, _ := NewFromJSON(abiJSON)

	_, err := d.Decode(types.Log{Topics: []common.Hash{}})
	assert.ErrorIs(t, err, ErrNoTopics)

	unknownSig := crypto.Keccak256Hash([]byte("Unknown()"))
	_, err = d.Decode(types.Log{Topics: []common.Hash{unknownSig}})
	assert.ErrorIs(t, err, ErrUnknownSignature)

	const abiWithIndexed = `[{"anonymous":false,"inputs":[{"indexed":true,"name":"a","type":"address"}],"name":"Event","type":"event"}]`
	d2, _ := NewFromJSON(abiWithIndexed)
	event, _ := d2.parsedABI.EventByID(crypto.Keccak256Hash([]byte("Event(address)")))
	_, err = d2.Decode(types.Log{Topics: []common.Hash{event.ID}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "topic count mismatch")
}
