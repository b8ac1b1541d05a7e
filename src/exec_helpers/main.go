package exec_helpers

import "time"

// waitDelay bounds how long Wait blocks on output pipes after a cancelled
// ssh process is killed.
const waitDelay = 5 * time.Second
