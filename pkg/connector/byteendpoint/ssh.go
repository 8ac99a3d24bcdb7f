package byteendpoint

import (
	"context"
	"net/url"
	"os"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/portage-data/portage/pkg/connector"
	"github.com/portage-data/portage/pkg/pgerrors"
)

// sshClient dials uri's host using password or private-key auth taken
// from options, matching the credential fields a scp/sftp endpoint
// needs and nothing else.
func sshClient(uri string, options map[string]string) (*ssh.Client, *sftp.Client, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, nil, "", pgerrors.Wrap(err, pgerrors.KindConfiguration, "malformed SSH endpoint URI")
	}

	user := u.User.Username()
	if user == "" {
		user = options["user"]
	}

	var auths []ssh.AuthMethod
	if pass, ok := options["password"]; ok && pass != "" {
		auths = append(auths, ssh.Password(pass))
	}
	if keyPath, ok := options["private_key"]; ok && keyPath != "" {
		keyBytes, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, nil, "", pgerrors.Wrap(err, pgerrors.KindConnection, "failed to read SSH private key")
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, nil, "", pgerrors.Wrap(err, pgerrors.KindConnection, "failed to parse SSH private key")
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}
	if len(auths) == 0 {
		return nil, nil, "", pgerrors.New(pgerrors.KindConfiguration, "SSH endpoint requires password or private_key option")
	}

	host := u.Host
	if u.Port() == "" {
		host += ":22"
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	conn, err := ssh.Dial("tcp", host, config)
	if err != nil {
		return nil, nil, "", pgerrors.Wrap(err, pgerrors.KindConnection, "failed to dial SSH endpoint").
			WithDetail("host", host)
	}
	sc, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, nil, "", pgerrors.Wrap(err, pgerrors.KindConnection, "failed to start SFTP session")
	}
	return conn, sc, u.Path, nil
}

func openSSHSource(ctx context.Context, uri string, options map[string]string) (connector.Source, error) {
	conn, sc, remotePath, err := sshClient(uri, options)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	defer sc.Close()

	remote, err := sc.Open(remotePath)
	if err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to open remote file over SFTP").
			WithDetail("path", remotePath)
	}
	defer remote.Close()

	tmpPath, err := tempFileFor(uri)
	if err != nil {
		return nil, err
	}
	if err := downloadTo(tmpPath, remote); err != nil {
		return nil, pgerrors.Wrap(err, pgerrors.KindConnection, "failed to stage SSH source")
	}

	src, err := connector.OpenFormatSource(ctx, tmpPath, options)
	if err != nil {
		return nil, err
	}
	return &stagedSource{Source: src, tmpPath: tmpPath}, nil
}

func openSSHTarget(ctx context.Context, uri string, options map[string]string) (connector.Target, error) {
	tmpPath, err := tempFileFor(uri)
	if err != nil {
		return nil, err
	}

	tgt, err := connector.OpenFormatTarget(ctx, tmpPath, options)
	if err != nil {
		return nil, err
	}

	upload := func(ctx context.Context, localPath string) error {
		conn, sc, remotePath, err := sshClient(uri, options)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer sc.Close()

		local, err := os.Open(localPath)
		if err != nil {
			return pgerrors.Wrap(err, pgerrors.KindConnection, "failed to reopen staged SSH target")
		}
		defer local.Close()

		remote, err := sc.Create(remotePath)
		if err != nil {
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to create remote file over SFTP").
				WithDetail("path", remotePath)
		}
		defer remote.Close()

		if _, err := remote.ReadFrom(local); err != nil {
			return pgerrors.Wrap(err, pgerrors.KindTarget, "failed to upload staged SSH target")
		}
		return nil
	}

	return &stagedTarget{Target: tgt, tmpPath: tmpPath, upload: upload}, nil
}
