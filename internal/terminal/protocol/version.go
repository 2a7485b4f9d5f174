package protocol

import (
	"strings"
	"tradebridge/internal/errors"

	"github.com/Masterminds/semver/v3"
)

const Version = "1.0.0"

// CheckVersion accepts a terminal whose protocol shares our major version.
func CheckVersion(local, remote string) error {
	localVer, err := semver.NewVersion(strings.TrimPrefix(local, "v"))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeVersionMismatch, err, "Некорректная версия протокола %q", local)
	}
	remoteVer, err := semver.NewVersion(strings.TrimPrefix(remote, "v"))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeVersionMismatch, err, "Терминал прислал некорректную версию %q", remote)
	}
	if localVer.Major() != remoteVer.Major() {
		return errors.Newf(errors.ErrCodeVersionMismatch, "Несовместимая версия протокола: мост %s, терминал %s", localVer, remoteVer)
	}
	return nil
}
