package bt

import (
	"context"
	"errors"
	"strings"
	"testing"

	dbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/btkvm/internal/session"
)

func TestParseAddress(t *testing.T) {
	type testCase struct {
		name    string
		in      string
		want    [6]byte
		wantErr bool
	}
	cases := []testCase{
		{name: "upper", in: "AA:BB:CC:DD:EE:01", want: [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0x01}},
		{name: "lower with spaces", in: " aa:bb:cc:dd:ee:01 ", want: [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0x01}},
		{name: "too short", in: "AA:BB:CC", wantErr: true},
		{name: "bad hex", in: "AA:BB:CC:DD:EE:ZZ", wantErr: true},
		{name: "single digit group", in: "A:BB:CC:DD:EE:FF", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAddress(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			n, err := NormalizeAddress(tc.in)
			require.NoError(t, err)
			assert.Equal(t, "AA:BB:CC:DD:EE:01", n)
		})
	}
}

func TestReverseMatchesKernelOrder(t *testing.T) {
	wire := [6]byte{0x01, 0xEE, 0xDD, 0xCC, 0xBB, 0xAA}
	assert.Equal(t, "AA:BB:CC:DD:EE:01", FormatAddress(reverse(wire)))
}

func TestDevicePathRoundTrip(t *testing.T) {
	adapter := dbus.ObjectPath("/org/bluez/hci0")
	p := DevicePath(adapter, "aa:bb:cc:dd:ee:ff")
	assert.Equal(t, dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"), p)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", AddressFromPath(p))

	assert.Equal(t, "", AddressFromPath("/org/bluez/hci0"))
	assert.Equal(t, "", AddressFromPath("/org/bluez/hci0/dev_nope"))
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", AddressFromPath("/org/bluez/hci0/dev_aa_bb_cc_dd_ee_ff"))
}

func TestDevicesFromObjects(t *testing.T) {
	objs := map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		"/org/bluez/hci0": {adapterIface: {}},
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF": {
			deviceIface: {
				"Address": dbus.MakeVariant("aa:bb:cc:dd:ee:ff"),
				"Name":    dbus.MakeVariant("Laptop"),
				"Paired":  dbus.MakeVariant(true),
			},
		},
		"/org/bluez/hci0/dev_11_22_33_44_55_66": {deviceIface: {}},
		"/org/bluez/hci1/dev_99_99_99_99_99_99": {deviceIface: {}},
	}

	devs := devicesFromObjects("/org/bluez/hci0", objs)
	require.Len(t, devs, 2)
	byAddr := map[string]Device{}
	for _, d := range devs {
		byAddr[d.Address] = d
	}
	assert.Equal(t, Device{
		Path:    "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF",
		Address: "AA:BB:CC:DD:EE:FF",
		Name:    "Laptop",
		Paired:  true,
	}, byAddr["AA:BB:CC:DD:EE:FF"])
	assert.Contains(t, byAddr, "11:22:33:44:55:66")

	assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF"}, PairedAddresses(devs), "discovered but unpaired devices are skipped")
}

func TestParseLinkRole(t *testing.T) {
	const out = `Connections:
	< ACL AA:BB:CC:DD:EE:01 handle 11 state 1 lm MASTER AUTH ENCRYPT
	> ACL AA:BB:CC:DD:EE:02 handle 12 state 1 lm SLAVE
	< ACL AA:BB:CC:DD:EE:03 handle 13 state 1 lm PERIPHERAL AUTH
	< ACL AA:BB:CC:DD:EE:04 handle 14 state 1 lm CENTRAL
	< ACL AA:BB:CC:DD:EE:05 handle 15 state 1 lm
`
	type testCase struct {
		addr string
		want session.Role
	}
	cases := []testCase{
		{addr: "AA:BB:CC:DD:EE:01", want: session.RoleMaster},
		{addr: "aa:bb:cc:dd:ee:02", want: session.RoleSlave},
		{addr: "AA:BB:CC:DD:EE:03", want: session.RoleSlave},
		{addr: "AA:BB:CC:DD:EE:04", want: session.RoleMaster},
		{addr: "AA:BB:CC:DD:EE:05", want: session.RoleUnknown},
		{addr: "AA:BB:CC:DD:EE:99", want: session.RoleUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.addr, func(t *testing.T) {
			assert.Equal(t, tc.want, parseLinkRole([]byte(out), tc.addr))
		})
	}
}

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls  []call
	output []byte
	failOn string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, call{name: name, args: args})
	line := name + " " + strings.Join(args, " ")
	if r.failOn != "" && strings.Contains(line, r.failOn) {
		return nil, errors.New("boom: " + line)
	}
	return r.output, nil
}

func TestSetupAdapter(t *testing.T) {
	r := &fakeRunner{failOn: "class"}
	h := NewHCI("hci0", nil)
	h.Runner = r

	err := h.SetupAdapter(context.Background(), "BT-KVM")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class")

	require.Len(t, r.calls, 5, "all steps run even after a failure")
	assert.Equal(t, []call{
		{"hciconfig", []string{"hci0", "down"}},
		{"hciconfig", []string{"hci0", "up"}},
		{"hciconfig", []string{"hci0", "class", DeviceClass}},
		{"hciconfig", []string{"hci0", "name", "BT-KVM"}},
		{"hciconfig", []string{"hci0", "piscan"}},
	}, r.calls)
}

func TestHCILinkRoleAndSwitch(t *testing.T) {
	r := &fakeRunner{output: []byte("Connections:\n\t< ACL AA:BB:CC:DD:EE:01 handle 11 state 1 lm SLAVE\n")}
	h := NewHCI("hci0", nil)
	h.Runner = r

	role, err := h.LinkRole(context.Background(), "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)
	assert.Equal(t, session.RoleSlave, role)

	require.NoError(t, h.SwitchToMaster(context.Background(), "AA:BB:CC:DD:EE:01"))
	assert.Equal(t, call{"hcitool", []string{"sr", "AA:BB:CC:DD:EE:01", "MASTER"}}, r.calls[1])

	r.failOn = "con"
	role, err = h.LinkRole(context.Background(), "AA:BB:CC:DD:EE:01")
	assert.Error(t, err)
	assert.Equal(t, session.RoleUnknown, role)
}
