package power

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultWakePort is the conventional Wake-on-LAN discard port.
const DefaultWakePort = 9

// WakePacket builds the magic packet for a hardware address: six 0xFF bytes
// followed by the address repeated sixteen times.
func WakePacket(mac string) ([]byte, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("invalid hardware address %q: %w", mac, err)
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("hardware address %q is not 48-bit", mac)
	}

	packet := make([]byte, 0, 102)
	packet = append(packet, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
	for i := 0; i < 16; i++ {
		packet = append(packet, hw...)
	}
	return packet, nil
}

// Wake sends the magic packet for mac, unicast to host:port and to the local
// broadcast address. Unicast reaches TVs outside the broadcast domain;
// broadcast covers a TV whose ARP entry has expired while it slept. No
// acknowledgment exists at this layer, so one successful send is success.
func Wake(mac, host string, port int) error {
	packet, err := WakePacket(mac)
	if err != nil {
		return err
	}
	if port == 0 {
		port = DefaultWakePort
	}

	unicastErr := sendPacket(packet, net.JoinHostPort(host, strconv.Itoa(port)))
	broadcastErr := sendPacket(packet, net.JoinHostPort("255.255.255.255", strconv.Itoa(port)))

	if unicastErr != nil && broadcastErr != nil {
		return fmt.Errorf("failed to send wake packet: %w", unicastErr)
	}
	return nil
}

func sendPacket(packet []byte, addr string) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write(packet)
	return err
}
