package socks5

/*
	   +----+-----+-------+------+----------+----------+
	   |VER | REP |  RSV  | ATYP | BND.ADDR | BND.PORT |
	   +----+-----+-------+------+----------+----------+
	   | 1  |  1  | X'00' |  1   |    4     |    2     |
	   +----+-----+-------+------+----------+----------+

The bound address is always reported as 0.0.0.0:0; CONNECT clients do not use it.
*/

// NewReply encodes a reply frame carrying rep.
func NewReply(rep uint8) []byte {
	return []byte{SOCKS5VERSION, rep, 0x00, RequestAtypIPV4, 0, 0, 0, 0, 0, 0}
}

// Reply writes a reply frame with the given code to the client.
func (s *Session) Reply(rep uint8) error {
	return s.write(NewReply(rep))
}
