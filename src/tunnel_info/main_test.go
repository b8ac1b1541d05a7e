package tunnel_info

import "testing"

func TestCommand(t *testing.T) {
	for _, tc := range []struct {
		ti   TunnelInfo
		want string
	}{
		{
			ti:   TunnelInfo{LocalPort: 2525, RemotePort: 25, RemoteHost: "smtp.example.com", RemoteUser: "relay"},
			want: "ssh -f -N -p 22 relay@smtp.example.com -L 2525/localhost/25 -oStrictHostKeyChecking=no",
		},
		{
			ti:   TunnelInfo{LocalPort: 15432, RemotePort: 5432, RemoteHost: "db1", RemoteUser: "pg", LocalHost: "10.1.0.4", SshPort: 2222},
			want: "ssh -f -N -p 2222 pg@db1 -L 15432/10.1.0.4/5432 -oStrictHostKeyChecking=no",
		},
	} {
		if got := tc.ti.Command(); got != tc.want {
			t.Errorf("Command() = %q; want %q", got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := TunnelInfo{LocalPort: 1, RemotePort: 2, RemoteHost: "h", RemoteUser: "u"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate(%+v) = %v", valid, err)
	}

	for _, ti := range []TunnelInfo{
		{LocalPort: 1, RemotePort: 2, RemoteUser: "u"},
		{LocalPort: 1, RemotePort: 2, RemoteHost: "h"},
		{LocalPort: 0, RemotePort: 2, RemoteHost: "h", RemoteUser: "u"},
		{LocalPort: 1, RemotePort: 70000, RemoteHost: "h", RemoteUser: "u"},
		{LocalPort: 1, RemotePort: 2, RemoteHost: "h", RemoteUser: "u", SshPort: -1},
	} {
		if err := ti.Validate(); err == nil {
			t.Errorf("Validate(%+v) succeeded unexpectedly", ti)
		}
	}
}
