package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/daimatz/gojvm/pkg/heap"
	"github.com/daimatz/gojvm/pkg/interp"
	"github.com/daimatz/gojvm/pkg/linker"
	"github.com/daimatz/gojvm/pkg/loader"
)

var (
	classpath string
	jmodPath  string
	verbosity int
)

// findJmodPath probes the usual JDK install locations, kept as the --jmod
// flag's default rather than a direct lookup so a user can still override
// it on the command line.
func findJmodPath() string {
	if env := os.Getenv("JAVA_BASE_JMOD"); env != "" {
		return env
	}
	if javaHome := os.Getenv("JAVA_HOME"); javaHome != "" {
		p := filepath.Join(javaHome, "jmods", "java.base.jmod")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	matches, _ := filepath.Glob("/usr/lib/jvm/java-*-openjdk-*/jmods/java.base.jmod")
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}

func levelForVerbosity(v int) logrus.Level {
	switch {
	case v >= 2:
		return logrus.DebugLevel
	case v == 1:
		return logrus.InfoLevel
	default:
		return logrus.WarnLevel
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	log.SetLevel(levelForVerbosity(verbosity))

	classFilePath := args[0]
	mainClass := strings.TrimSuffix(filepath.Base(classFilePath), ".class")
	if classpath == "" {
		classpath = filepath.Dir(classFilePath)
	}

	if jmodPath == "" {
		jmodPath = findJmodPath()
	}
	if jmodPath == "" {
		return fmt.Errorf("could not find java.base.jmod; pass --jmod or set JAVA_HOME/JAVA_BASE_JMOD")
	}

	h := heap.New(log)
	h.RegisterLoader(interp.BootstrapLoader, loader.NewCompositeLoader(
		loader.ByteLoaderNamed{Name: "classpath", Loader: loader.NewDirLoader(classpath, log)},
		loader.ByteLoaderNamed{Name: "java.base.jmod", Loader: loader.NewJmodLoader(jmodPath, log)},
	))
	h.SetLinkFunc(linker.Link)

	it := interp.New(h)
	if err := it.EnsureCoreClasses(); err != nil {
		return fmt.Errorf("bootstrapping core classes: %w", err)
	}

	return it.Execute(mainClass, args[1:])
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "gojvm <classfile> [args...]",
		Short: "A minimal JVM core: classfile decoder, method area, and bytecode interpreter",
		Args:  cobra.MinimumNArgs(1),
		RunE:  run,
	}

	rootCmd.Flags().StringVar(&classpath, "classpath", "", "directory to resolve user classes from (default: the class file's directory)")
	rootCmd.Flags().StringVar(&jmodPath, "jmod", "", "path to java.base.jmod (default: probed via JAVA_HOME/JAVA_BASE_JMOD)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v, -vv)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
