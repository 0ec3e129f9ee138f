package ha

import "context"

// applyFollowerRead issues the SET session statements matching state on
// ex, per spec.md §3.1's EnableFollowerRead state machine. NoOp issues
// nothing, leaving the session's existing setting untouched.
func applyFollowerRead(ctx context.Context, ex sqlExecutor, state int) error {
	switch state {
	case FollowerReadNoOp:
		return nil
	case FollowerReadDisable:
		_, err := ex.ExecContext(ctx, setFollowerReadFalse)
		return err
	case FollowerReadEnable:
		if _, err := ex.ExecContext(ctx, setFollowerReadTrue); err != nil {
			return err
		}
		if _, err := ex.ExecContext(ctx, setReadWeight); err != nil {
			return err
		}
		_, err := ex.ExecContext(ctx, enableConsistentReadFalse)
		return err
	case FollowerReadEnableConsistent:
		if _, err := ex.ExecContext(ctx, setFollowerReadTrue); err != nil {
			return err
		}
		if _, err := ex.ExecContext(ctx, setReadWeight); err != nil {
			return err
		}
		_, err := ex.ExecContext(ctx, enableConsistentReadTrue)
		return err
	default:
		return ErrInvalidFollowerReadState
	}
}
