package uprouter

// IPProto is an IP protocol number, as carried in the IPv4 header's
// Protocol field.
type IPProto uint8

// Protocol numbers the router inspects. The full IANA registry is not
// reproduced since only these three participate in forwarding decisions.
const (
	IPProtoICMP IPProto = 1
	IPProtoTCP  IPProto = 6
	IPProtoUDP  IPProto = 17
)

func (p IPProto) String() string {
	switch p {
	case IPProtoICMP:
		return "ICMP"
	case IPProtoTCP:
		return "TCP"
	case IPProtoUDP:
		return "UDP"
	default:
		return "unknown"
	}
}
