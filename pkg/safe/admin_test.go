package safe

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	pkgTesting "github.com/arnac-io/opensafeapi/pkg/testing"
)

func TestContract_adminRequiresSelfCall(t *testing.T) {
	owners := pkgTesting.Accounts(t, "admin-auth", 2)
	c := newTestContract(t, owners, 1)
	newOwner := pkgTesting.NewAccount(t, "newcomer").Address

	require.ErrorIs(t, c.AddOwnerWithThreshold(owners[0].Address, newOwner, 1), ErrUnauthorized)
	require.ErrorIs(t, c.ChangeThreshold(owners[0].Address, 2), ErrUnauthorized)
	require.ErrorIs(t, c.EnableModule(owners[0].Address, newOwner), ErrUnauthorized)
	require.ErrorIs(t, c.ChangeMasterCopy(owners[0].Address, newOwner), ErrUnauthorized)

	data, err := PackChangeThreshold(2)
	require.Nil(t, err)
	_, err = c.Invoke(owners[0].Address, data)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, uint8(1), c.Threshold())
}

func TestContract_ownerAdministration(t *testing.T) {
	owners := pkgTesting.Accounts(t, "admin-owners", 3)
	a, b, cc := owners[0], owners[1], owners[2]
	d := pkgTesting.NewAccount(t, "admin-owners-d")
	c := newTestContract(t, owners, 2)

	data, err := PackAddOwnerWithThreshold(d.Address, 3)
	require.Nil(t, err)
	receipt := execSelf(t, c, data, a, b)
	require.True(t, receipt.Success)
	require.Equal(t, []common.Address{d.Address, a.Address, b.Address, cc.Address}, c.Owners())
	require.Equal(t, uint8(3), c.Threshold())

	// wrong predecessor fails the inner call, the nonce is still used
	data, err = PackRemoveOwner(Sentinel, b.Address, 2)
	require.Nil(t, err)
	receipt = execSelf(t, c, data, a, b, cc)
	require.False(t, receipt.Success)
	require.Len(t, c.Owners(), 4)
	require.Equal(t, int64(2), c.Nonce().Int64())

	data, err = PackRemoveOwner(a.Address, b.Address, 2)
	require.Nil(t, err)
	receipt = execSelf(t, c, data, a, b, cc)
	require.True(t, receipt.Success)
	require.Equal(t, []common.Address{d.Address, a.Address, cc.Address}, c.Owners())
	require.Equal(t, uint8(2), c.Threshold())
	require.False(t, c.IsOwner(b.Address))

	data, err = PackSwapOwner(d.Address, a.Address, b.Address)
	require.Nil(t, err)
	receipt = execSelf(t, c, data, cc, d)
	require.True(t, receipt.Success)
	require.Equal(t, []common.Address{d.Address, b.Address, cc.Address}, c.Owners())

	data, err = PackChangeThreshold(1)
	require.Nil(t, err)
	receipt = execSelf(t, c, data, b, cc)
	require.True(t, receipt.Success)
	require.Equal(t, uint8(1), c.Threshold())
}

func TestContract_RemoveOwner(t *testing.T) {
	owners := pkgTesting.Accounts(t, "remove", 3)
	tests := []struct {
		name      string
		prev      common.Address
		owner     common.Address
		threshold uint8
		wantErr   error
		want      []common.Address
	}{
		{
			name:      "first owner",
			prev:      Sentinel,
			owner:     owners[0].Address,
			threshold: 2,
			want:      []common.Address{owners[1].Address, owners[2].Address},
		},
		{
			name:      "last owner with lower threshold",
			prev:      owners[1].Address,
			owner:     owners[2].Address,
			threshold: 1,
			want:      []common.Address{owners[0].Address, owners[1].Address},
		},
		{
			name:      "below threshold",
			prev:      Sentinel,
			owner:     owners[0].Address,
			threshold: 3,
			wantErr:   ErrThresholdTooHigh,
		},
		{
			name:      "zero threshold",
			prev:      Sentinel,
			owner:     owners[0].Address,
			threshold: 0,
			wantErr:   ErrThresholdTooLow,
		},
		{
			name:      "wrong predecessor",
			prev:      owners[2].Address,
			owner:     owners[1].Address,
			threshold: 2,
			wantErr:   ErrInvalidPrevOwner,
		},
		{
			name:      "sentinel",
			prev:      owners[2].Address,
			owner:     Sentinel,
			threshold: 2,
			wantErr:   ErrInvalidOwner,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContract(t, owners, 2)
			err := c.RemoveOwner(testSafe, tt.prev, tt.owner, tt.threshold)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Equal(t, pkgTesting.Addresses(owners), c.Owners())
				require.Equal(t, uint8(2), c.Threshold())
				return
			}
			require.Nil(t, err)
			require.Equal(t, tt.want, c.Owners())
			require.Equal(t, tt.threshold, c.Threshold())
		})
	}
}

func TestContract_SwapOwner(t *testing.T) {
	owners := pkgTesting.Accounts(t, "swap", 2)
	fresh := pkgTesting.NewAccount(t, "swap-fresh").Address
	c := newTestContract(t, owners, 1)

	require.ErrorIs(t, c.SwapOwner(testSafe, Sentinel, owners[0].Address, owners[1].Address), ErrDuplicateOwner)
	require.ErrorIs(t, c.SwapOwner(testSafe, Sentinel, owners[0].Address, common.Address{}), ErrInvalidOwner)
	require.ErrorIs(t, c.SwapOwner(testSafe, Sentinel, owners[1].Address, fresh), ErrInvalidPrevOwner)
	require.Nil(t, c.SwapOwner(testSafe, owners[0].Address, owners[1].Address, fresh))
	require.Equal(t, []common.Address{owners[0].Address, fresh}, c.Owners())
}

func TestContract_ChangeThreshold(t *testing.T) {
	owners := pkgTesting.Accounts(t, "threshold", 3)
	c := newTestContract(t, owners, 2)
	require.ErrorIs(t, c.ChangeThreshold(testSafe, 4), ErrThresholdTooHigh)
	require.ErrorIs(t, c.ChangeThreshold(testSafe, 0), ErrThresholdTooLow)
	require.Nil(t, c.ChangeThreshold(testSafe, 3))
	require.Equal(t, uint8(3), c.Threshold())
}

func TestContract_AddOwnerWithThreshold_rollsBack(t *testing.T) {
	owners := pkgTesting.Accounts(t, "add-owner", 2)
	fresh := pkgTesting.NewAccount(t, "add-owner-fresh").Address
	c := newTestContract(t, owners, 1)
	require.ErrorIs(t, c.AddOwnerWithThreshold(testSafe, fresh, 4), ErrThresholdTooHigh)
	require.False(t, c.IsOwner(fresh))
	require.ErrorIs(t, c.AddOwnerWithThreshold(testSafe, owners[1].Address, 1), ErrDuplicateOwner)
}

func TestContract_modules(t *testing.T) {
	owners := pkgTesting.Accounts(t, "modules", 1)
	m1 := pkgTesting.NewAccount(t, "module-1").Address
	m2 := pkgTesting.NewAccount(t, "module-2").Address
	c := newTestContract(t, owners, 1)
	c.Deposit(big.NewInt(100))

	ok, err := c.ExecTransactionFromModule(m1, testTo, big.NewInt(1), nil, OperationCall)
	require.ErrorIs(t, err, ErrModuleNotEnabled)
	require.False(t, ok)
	_, err = c.ExecTransactionFromModule(Sentinel, testTo, nil, nil, OperationCall)
	require.ErrorIs(t, err, ErrModuleNotEnabled)

	require.Nil(t, c.EnableModule(testSafe, m1))
	require.Nil(t, c.EnableModule(testSafe, m2))
	require.ErrorIs(t, c.EnableModule(testSafe, m1), ErrDuplicateModule)
	require.ErrorIs(t, c.EnableModule(testSafe, Sentinel), ErrInvalidModule)
	require.Equal(t, []common.Address{m2, m1}, c.Modules())

	ok, err = c.ExecTransactionFromModule(m1, testTo, big.NewInt(40), nil, OperationCall)
	require.Nil(t, err)
	require.True(t, ok)
	require.Equal(t, big.NewInt(60), c.Balance())

	ok, err = c.ExecTransactionFromModule(m1, testTo, big.NewInt(100), nil, OperationCall)
	require.Nil(t, err)
	require.False(t, ok)
	require.Equal(t, big.NewInt(60), c.Balance())
	require.Equal(t, int64(0), c.Nonce().Int64())

	require.ErrorIs(t, c.DisableModule(testSafe, Sentinel, m1), ErrInvalidPrevModule)
	require.Nil(t, c.DisableModule(testSafe, m2, m1))
	require.Equal(t, []common.Address{m2}, c.Modules())
	_, err = c.ExecTransactionFromModule(m1, testTo, nil, nil, OperationCall)
	require.ErrorIs(t, err, ErrModuleNotEnabled)
}

func TestContract_ChangeMasterCopy(t *testing.T) {
	owners := pkgTesting.Accounts(t, "master-copy", 1)
	c := newTestContract(t, owners, 1)
	next := common.HexToAddress("0x3a51e3")
	require.ErrorIs(t, c.ChangeMasterCopy(testSafe, common.Address{}), ErrInvalidMasterCopy)
	require.Nil(t, c.ChangeMasterCopy(testSafe, next))
	require.Equal(t, next, c.MasterCopy())
}

func TestContract_RequiredTxGas(t *testing.T) {
	owners := pkgTesting.Accounts(t, "required-gas", 1)
	handler := &recordingHandler{failFor: testToken}
	c := NewContract(testSafe, common.Address{}, handler)
	require.Nil(t, c.Setup(pkgTesting.Addresses(owners), 1, common.Address{}, nil))

	err := c.RequiredTxGas(owners[0].Address, testTo, nil, nil, OperationCall)
	require.ErrorIs(t, err, ErrUnauthorized)

	err = c.RequiredTxGas(testSafe, testTo, nil, []byte{0x01}, OperationCall)
	var revert *RevertError
	require.ErrorAs(t, err, &revert)
	gas, err := DecodeRequiredGas(revert.Data)
	require.Nil(t, err)
	require.Equal(t, big.NewInt(21_000), gas)

	err = c.RequiredTxGas(testSafe, testToken, nil, nil, OperationCall)
	require.ErrorAs(t, err, &revert)
	require.Empty(t, revert.Data)

	// the simulation leaves no trace
	require.Equal(t, int64(0), c.Nonce().Int64())
	require.Empty(t, c.Events())
}

func TestContract_Invoke_views(t *testing.T) {
	owners := pkgTesting.Accounts(t, "views", 2)
	c := newTestContract(t, owners, 2)
	tests := []struct {
		method string
		args   []interface{}
		want   interface{}
	}{
		{method: MethodName, want: Name},
		{method: MethodVersion, want: Version},
		{method: MethodGetThreshold, want: uint8(2)},
		{method: MethodGetOwners, want: pkgTesting.Addresses(owners)},
		{method: MethodGetModules, want: []common.Address{}},
		{method: MethodIsOwner, args: []interface{}{owners[1].Address}, want: true},
		{method: MethodIsOwner, args: []interface{}{testTo}, want: false},
		{method: MethodSentinelOwners, want: Sentinel},
		{method: MethodTotalGasCosts, args: []interface{}{big.NewInt(1), big.NewInt(2)}, want: big.NewInt(3 + PaymentBaseGas)},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			input, err := ContractABI.Pack(tt.method, tt.args...)
			require.Nil(t, err)
			output, err := c.Invoke(testTo, input)
			require.Nil(t, err)
			values, err := ContractABI.Unpack(tt.method, output)
			require.Nil(t, err)
			require.Equal(t, []interface{}{tt.want}, values)
		})
	}
}
