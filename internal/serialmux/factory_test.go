package serialmux

import (
	"testing"
)

func TestNewRealSerialMux(t *testing.T) {
	// no device exists at this path, so only the error path is testable
	mux, err := NewRealSerialMux("/dev/nonexistent-serial-port-12345", PortOptions{})
	if err == nil {
		t.Error("Expected error when opening non-existent serial port")
		mux.Close()
	}
	if err != nil && mux != nil {
		t.Error("Expected nil mux when error is returned")
	}
}

func TestRealSerialPortFactory_Open_InvalidOptions(t *testing.T) {
	_, err := NewRealSerialPortFactory().Open("/dev/nonexistent-serial-port-12345", PortOptions{DataBits: 12})
	if err == nil {
		t.Error("Expected error for invalid data bits")
	}
}

func TestMockSerialPortFactory(t *testing.T) {
	port := NewTestableSerialPort()
	factory := NewMockSerialPortFactory(port)

	if factory.LastCall() != nil {
		t.Fatal("LastCall() before any Open should be nil")
	}
	got, err := factory.Open("/dev/ttyACM0", PortOptions{BaudRate: 9600})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got != port {
		t.Error("Open() did not return the configured port")
	}
	call := factory.LastCall()
	if call == nil || call.Path != "/dev/ttyACM0" || call.Opts.BaudRate != 9600 {
		t.Errorf("LastCall() = %+v", call)
	}
}
