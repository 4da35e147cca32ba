package platform

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePort(t *testing.T) {
	cases := map[string]string{
		"rpi3":        "I2C1",
		"imx6ul_pico": "I2C2",
		"imx7d_pico":  "I2C1",
		" RPI5 ":      "I2C1",
	}
	for id, want := range cases {
		got, err := ResolvePort(id)
		require.NoError(t, err, id)
		require.Equal(t, want, got, id)
	}
}

func TestResolvePort_Unknown(t *testing.T) {
	_, err := ResolvePort("beaglebone")
	require.ErrorIs(t, err, ErrUnknownPlatform)
	require.ErrorContains(t, err, "beaglebone")
}

func TestTable_Sorted(t *testing.T) {
	tbl := Table()
	require.Len(t, tbl, len(ports))
	for i := 1; i < len(tbl); i++ {
		require.Less(t, tbl[i-1].ID, tbl[i].ID)
	}
}

func withModel(t *testing.T, model string, err error) {
	t.Helper()
	old := readFile
	readFile = func(string) ([]byte, error) {
		if err != nil {
			return nil, err
		}
		return []byte(model), nil
	}
	t.Cleanup(func() { readFile = old })
}

func TestDetect(t *testing.T) {
	withModel(t, "Raspberry Pi 3 Model B Plus Rev 1.3\x00", nil)
	id, err := Detect()
	require.NoError(t, err)
	require.Equal(t, RPi3, id)
}

func TestDetect_UnknownModel(t *testing.T) {
	withModel(t, "Some Other Board\x00", nil)
	_, err := Detect()
	require.ErrorIs(t, err, ErrUnknownPlatform)
	require.ErrorContains(t, err, "Some Other Board")
}

func TestDetect_NoModel(t *testing.T) {
	withModel(t, "", os.ErrNotExist)
	_, err := Detect()
	require.True(t, errors.Is(err, ErrUnknownPlatform))
}

func TestFromModel(t *testing.T) {
	require.Equal(t, RPi4, FromModel("Raspberry Pi 4 Model B Rev 1.4"))
	require.Equal(t, IMX7DPico, FromModel("TechNexion PICO-IMX7D"))
	require.Equal(t, IMX6ULPico, FromModel("TechNexion PICO-IMX6UL"))
	require.Equal(t, "", FromModel("x86"))
}
